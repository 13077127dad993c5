package populator

import (
	"fmt"
	"math/rand"
	"time"

	"github.com/mudrockdev/mudrockdbtool/schema"
)

const timeLayout = "2006-01-02 15:04:05"

var (
	userColumns    = []string{"id", "email", "name", "password_hash", "created_at", "updated_at"}
	postColumns    = []string{"id", "user_id", "content", "publish_date", "title", "created_at"}
	productColumns = []string{"id", "description_long", "description_medium", "description_tiny", "ean", "name",
		"price", "sku", "status", "stock", "created_at", "refresh_at"}

	firstNames = []string{"Ana", "Bruno", "Carla", "Diego", "Elisa", "Fabio", "Gina", "Hugo", "Iris", "Joao"}
	lastNames  = []string{"Silva", "Souza", "Costa", "Lima", "Rocha", "Alves", "Pereira", "Gomes"}
	statuses   = []string{"active", "inactive", "discontinued"}
)

type generator struct {
	rnd   *rand.Rand
	users int
	epoch time.Time
}

func newGenerator(seed int64, users int) *generator {
	return &generator{
		rnd:   rand.New(rand.NewSource(seed)),
		users: users,
		epoch: time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC),
	}
}

func (g *generator) row(table string) func(id int) schema.Row {
	switch table {
	case "users":
		return g.user
	case "posts":
		return g.post
	default:
		return g.product
	}
}

func (g *generator) user(id int) schema.Row {
	name := firstNames[g.rnd.Intn(len(firstNames))] + " " + lastNames[g.rnd.Intn(len(lastNames))]
	return schema.NewRow(userColumns, []any{
		int64(id),
		fmt.Sprintf("user%d@example.com", id),
		name,
		"$2y$10$" + g.randomString(53),
		g.timestamp(),
		g.maybeTimestamp(),
	})
}

func (g *generator) post(id int) schema.Row {
	return schema.NewRow(postColumns, []any{
		int64(id),
		int64(1 + g.rnd.Intn(max(g.users, 1))),
		g.text(1),
		g.timestamp()[:10],
		g.randomString(10 + g.rnd.Intn(50)),
		g.timestamp(),
	})
}

func (g *generator) product(id int) schema.Row {
	return schema.NewRow(productColumns, []any{
		int64(id),
		g.text(2),
		g.text(1),
		g.text(0),
		fmt.Sprintf("%013d", g.rnd.Int63n(1e13)),
		g.randomString(5 + g.rnd.Intn(30)),
		fmt.Sprintf("%.2f", float64(g.rnd.Intn(100000))/100),
		fmt.Sprintf("SKU-%06d", id),
		statuses[g.rnd.Intn(len(statuses))],
		int64(g.rnd.Intn(500)),
		g.timestamp(),
		g.maybeTimestamp(),
	})
}

// text returns a small (0), medium (1) or large (2) random string.
func (g *generator) text(size int) string {
	switch size {
	case 0:
		return g.randomString(10 + g.rnd.Intn(20))
	case 1:
		return g.randomString(100 + g.rnd.Intn(200))
	default:
		return g.randomString(1000 + g.rnd.Intn(4000))
	}
}

func (g *generator) timestamp() string {
	return g.epoch.Add(time.Duration(g.rnd.Intn(86400*365)) * time.Second).Format(timeLayout)
}

func (g *generator) maybeTimestamp() any {
	if g.rnd.Intn(2) == 0 {
		return nil
	}
	return g.timestamp()
}

func (g *generator) randomString(length int) string {
	const charset = "abcdefghijklmnopqrstuvwxyzABCDEFGHIJKLMNOPQRSTUVWXYZ0123456789 -_.,"
	b := make([]byte, length)
	for i := range b {
		b[i] = charset[g.rnd.Intn(len(charset))]
	}
	return string(b)
}
