package testprofiles

import (
	"crypto/rand"
	"fmt"
	"math/big"

	"github.com/google/uuid"
)

const maxGeneratedPoints = 20000

var firstNames = []string{"Ada", "Grace", "Alan", "Linus", "Barbara", "Ken", "Margaret", "Dennis", "Frances", "Edsger"}

// Seed registers n random profiles on site, cycling through every parseable
// variant, and returns their ids in registration order.
func Seed(site *Site, n int) []string {
	ids := make([]string, 0, n)
	for i := 0; i < n; i++ {
		id := uuid.NewString()
		site.Add(id, Profile{
			Name:    fmt.Sprintf("%s %d", firstNames[i%len(firstNames)], i+1),
			Points:  randomPoints(),
			Variant: Variant(i % int(VariantNotFound)),
		})
		ids = append(ids, id)
	}
	return ids
}

func randomPoints() int {
	n, err := rand.Int(rand.Reader, big.NewInt(maxGeneratedPoints))
	if err != nil {
		return 0
	}
	return int(n.Int64())
}
