package testprofiles

import (
	"encoding/csv"
	"fmt"
	"io"
	"strings"
)

// WriteCSV writes an upload roster for ids in the column layout accepted by
// the importer. Profiles are referenced relative to base.
func WriteCSV(w io.Writer, site *Site, base string, ids []string) error {
	cw := csv.NewWriter(w)
	if err := cw.Write([]string{"Name", "profile", "mail"}); err != nil {
		return err
	}
	for _, id := range ids {
		p, ok := site.Profile(id)
		if !ok {
			return fmt.Errorf("unknown profile %s", id)
		}
		mail := strings.ToLower(strings.ReplaceAll(p.Name, " ", ".")) + "@example.com"
		if err := cw.Write([]string{p.Name, URL(base, id), mail}); err != nil {
			return err
		}
	}
	cw.Flush()
	return cw.Error()
}
