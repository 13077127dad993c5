// Package populator creates the users, posts and products fixture tables on
// a database and fills them with random rows.
package populator

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"github.com/mudrockdev/mudrockdbtool/adapter"
	"github.com/mudrockdev/mudrockdbtool/schema"
)

// Tables lists the fixture tables in creation order.
var Tables = []string{"users", "posts", "products"}

var ddl = map[adapter.Dialect]map[string]string{
	adapter.MySQL: {
		"users": "CREATE TABLE `users` (\n" +
			"    `id` bigint NOT NULL AUTO_INCREMENT,\n" +
			"    `email` varchar(255) NOT NULL,\n" +
			"    `name` varchar(255) NOT NULL,\n" +
			"    `password_hash` varchar(255) NOT NULL,\n" +
			"    `created_at` timestamp NOT NULL DEFAULT CURRENT_TIMESTAMP,\n" +
			"    `updated_at` timestamp NULL DEFAULT NULL ON UPDATE CURRENT_TIMESTAMP,\n" +
			"    PRIMARY KEY (`id`),\n" +
			"    UNIQUE KEY `users_email` (`email`)\n" +
			")",
		"posts": "CREATE TABLE `posts` (\n" +
			"    `id` bigint NOT NULL AUTO_INCREMENT,\n" +
			"    `user_id` bigint NOT NULL,\n" +
			"    `content` text,\n" +
			"    `publish_date` date DEFAULT NULL,\n" +
			"    `title` varchar(200) NOT NULL,\n" +
			"    `created_at` timestamp NOT NULL DEFAULT CURRENT_TIMESTAMP,\n" +
			"    PRIMARY KEY (`id`),\n" +
			"    KEY `posts_user_id` (`user_id`)\n" +
			")",
		"products": "CREATE TABLE `products` (\n" +
			"    `id` int NOT NULL AUTO_INCREMENT,\n" +
			"    `description_long` longtext,\n" +
			"    `description_medium` mediumtext,\n" +
			"    `description_tiny` tinytext,\n" +
			"    `ean` varchar(100) NOT NULL,\n" +
			"    `name` varchar(255) NOT NULL,\n" +
			"    `price` decimal(10,2) DEFAULT '0.00',\n" +
			"    `sku` varchar(100) NOT NULL,\n" +
			"    `status` varchar(50) DEFAULT 'active',\n" +
			"    `stock` int DEFAULT '0',\n" +
			"    `created_at` timestamp NOT NULL DEFAULT CURRENT_TIMESTAMP,\n" +
			"    `refresh_at` timestamp NULL DEFAULT NULL ON UPDATE CURRENT_TIMESTAMP,\n" +
			"    PRIMARY KEY (`id`),\n" +
			"    UNIQUE KEY `products_ean_sku` (`ean`,`sku`)\n" +
			")",
	},
	adapter.PostgreSQL: {
		"users": `CREATE TABLE "users" (
    "id" bigserial NOT NULL,
    "email" character varying(255) NOT NULL,
    "name" character varying(255) NOT NULL,
    "password_hash" character varying(255) NOT NULL,
    "created_at" timestamp without time zone NOT NULL DEFAULT CURRENT_TIMESTAMP,
    "updated_at" timestamp without time zone,
    CONSTRAINT "users_email" UNIQUE ("email"),
    CONSTRAINT "users_pkey" PRIMARY KEY ("id")
)`,
		"posts": `CREATE TABLE "posts" (
    "id" bigserial NOT NULL,
    "user_id" bigint NOT NULL,
    "content" text,
    "publish_date" date,
    "title" character varying(200) NOT NULL,
    "created_at" timestamp without time zone NOT NULL DEFAULT CURRENT_TIMESTAMP,
    CONSTRAINT "posts_pkey" PRIMARY KEY ("id")
);
CREATE INDEX "posts_user_id" ON "posts" ("user_id")`,
		"products": `CREATE TABLE "products" (
    "id" serial NOT NULL,
    "description_long" text,
    "description_medium" text,
    "description_tiny" text,
    "ean" character varying(100) NOT NULL,
    "name" character varying(255) NOT NULL,
    "price" numeric(10, 2) DEFAULT 0.00,
    "sku" character varying(100) NOT NULL,
    "status" character varying(50) DEFAULT 'active'::character varying,
    "stock" integer DEFAULT 0,
    "created_at" timestamp without time zone NOT NULL DEFAULT CURRENT_TIMESTAMP,
    "refresh_at" timestamp without time zone,
    CONSTRAINT "products_ean_sku" UNIQUE ("ean", "sku"),
    CONSTRAINT "products_pkey" PRIMARY KEY ("id")
)`,
	},
}

// CreateTableSQL returns the DDL of a fixture table for dialect.
func CreateTableSQL(dialect adapter.Dialect, table string) (string, error) {
	tables, ok := ddl[dialect]
	if !ok {
		return "", &adapter.ValidationError{Field: "driver", Value: string(dialect), Reason: "Unsupported driver: " + string(dialect)}
	}
	stmt, ok := tables[table]
	if !ok {
		return "", &adapter.NotFoundError{Table: table}
	}
	return stmt, nil
}

// Target is the database being seeded.
type Target interface {
	Dialect() adapter.Dialect
	TableExists(ctx context.Context, table string) (bool, error)
	DropTable(ctx context.Context, table string) error
	Exec(ctx context.Context, query string) (int64, error)
	InsertInto(ctx context.Context, table string, rows []schema.Row) error
}

type Options struct {
	Users        int
	PostsPerUser int
	Products     int
	BatchSize    int
	// Seed makes the generated data reproducible. Zero picks one from the clock.
	Seed int64
	// Replace drops fixture tables that already exist.
	Replace bool
	Logger  *zerolog.Logger
}

func (o Options) withDefaults() Options {
	if o.Users == 0 {
		o.Users = 10
	}
	if o.PostsPerUser == 0 {
		o.PostsPerUser = 3
	}
	if o.Products == 0 {
		o.Products = 20
	}
	if o.BatchSize <= 0 {
		o.BatchSize = adapter.DefaultBatchSize
	}
	if o.Seed == 0 {
		o.Seed = time.Now().UnixNano()
	}
	return o
}

// Stats reports how many rows went into one table.
type Stats struct {
	Table   string
	Rows    int
	Batches int
}

// Seed creates the fixture tables on t and fills them.
func Seed(ctx context.Context, t Target, opts Options) ([]Stats, error) {
	opts = opts.withDefaults()
	log := zerolog.Nop()
	if opts.Logger != nil {
		log = *opts.Logger
	}

	for _, table := range Tables {
		if err := createTable(ctx, t, table, opts.Replace); err != nil {
			return nil, err
		}
		log.Debug().Str("table", table).Msg("fixture table created")
	}

	g := newGenerator(opts.Seed, opts.Users)
	counts := map[string]int{
		"users":    opts.Users,
		"posts":    opts.Users * opts.PostsPerUser,
		"products": opts.Products,
	}

	var stats []Stats
	for _, table := range Tables {
		s, err := fill(ctx, t, table, counts[table], opts.BatchSize, g.row(table))
		if err != nil {
			return stats, err
		}
		stats = append(stats, s)
		if t.Dialect() == adapter.PostgreSQL && s.Rows > 0 {
			// explicit ids do not advance the serial sequence
			query := fmt.Sprintf(`SELECT setval(pg_get_serial_sequence('%s', 'id'), (SELECT MAX("id") FROM "%s"))`, table, table)
			if _, err := t.Exec(ctx, query); err != nil {
				return stats, err
			}
		}
		log.Info().Str("table", table).Int("rows", s.Rows).Int("batches", s.Batches).Msg("fixture table filled")
	}
	return stats, nil
}

func createTable(ctx context.Context, t Target, table string, replace bool) error {
	stmt, err := CreateTableSQL(t.Dialect(), table)
	if err != nil {
		return err
	}
	exists, err := t.TableExists(ctx, table)
	if err != nil {
		return err
	}
	if exists {
		if !replace {
			return fmt.Errorf("%w: Table '%s' already exists.", adapter.ErrTableExists, table)
		}
		if err := t.DropTable(ctx, table); err != nil {
			return err
		}
	}
	_, err = t.Exec(ctx, stmt)
	return err
}

// fill inserts n rows built by next, batchSize at a time.
func fill(ctx context.Context, t Target, table string, n, batchSize int, next func(id int) schema.Row) (Stats, error) {
	s := Stats{Table: table}
	batch := make([]schema.Row, 0, batchSize)
	flush := func() error {
		if len(batch) == 0 {
			return nil
		}
		if err := t.InsertInto(ctx, table, batch); err != nil {
			return err
		}
		s.Rows += len(batch)
		s.Batches++
		batch = make([]schema.Row, 0, batchSize)
		return nil
	}
	for id := 1; id <= n; id++ {
		batch = append(batch, next(id))
		if len(batch) == batchSize {
			if err := flush(); err != nil {
				return s, err
			}
		}
	}
	return s, flush()
}
