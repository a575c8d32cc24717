package store

// migration represents a single schema migration.
type migration struct {
	Version int
	Name    string
	SQL     string
}

// migrations is the ordered list of all schema migrations.
var migrations = []migration{
	{
		Version: 1,
		Name:    "create conversations and messages",
		SQL: `
			CREATE TABLE conversations (
				id                       TEXT PRIMARY KEY,
				business_id              TEXT NOT NULL,
				channel                  TEXT NOT NULL,
				external_id              TEXT NOT NULL,
				customer_id              TEXT NOT NULL DEFAULT '',
				state                    TEXT NOT NULL DEFAULT 'idle',
				language                 TEXT NOT NULL DEFAULT '',
				pending_order            TEXT,
				pending_delivery         TEXT,
				partial_selection        TEXT,
				ai_processing            INTEGER NOT NULL DEFAULT 0,
				processing_started_at    TEXT,
				escalation_reason        TEXT NOT NULL DEFAULT '',
				failure_count            INTEGER NOT NULL DEFAULT 0,
				last_customer_message_at TEXT,
				created_at               TEXT NOT NULL DEFAULT (datetime('now')),
				updated_at               TEXT NOT NULL DEFAULT (datetime('now'))
			);

			CREATE UNIQUE INDEX idx_conversations_channel_ext ON conversations (channel, external_id);
			CREATE INDEX idx_conversations_business ON conversations (business_id);
			CREATE INDEX idx_conversations_processing ON conversations (ai_processing);

			CREATE TABLE messages (
				seq             INTEGER PRIMARY KEY AUTOINCREMENT,
				id              TEXT NOT NULL UNIQUE,
				conversation_id TEXT NOT NULL REFERENCES conversations(id) ON DELETE CASCADE,
				sender          TEXT NOT NULL,
				body            TEXT NOT NULL,
				external_id     TEXT NOT NULL DEFAULT '',
				status          TEXT NOT NULL DEFAULT '',
				created_at      TEXT NOT NULL DEFAULT (datetime('now'))
			);

			CREATE INDEX idx_messages_conversation ON messages (conversation_id, seq);
			CREATE INDEX idx_messages_external ON messages (conversation_id, external_id);
		`,
	},
	{
		Version: 2,
		Name:    "create products and variants",
		SQL: `
			CREATE TABLE products (
				id          TEXT PRIMARY KEY,
				business_id TEXT NOT NULL,
				name        TEXT NOT NULL,
				description TEXT NOT NULL DEFAULT '',
				price       REAL NOT NULL DEFAULT 0,
				available   INTEGER NOT NULL DEFAULT 1
			);

			CREATE INDEX idx_products_business ON products (business_id, available);

			CREATE TABLE variants (
				id            TEXT PRIMARY KEY,
				product_id    TEXT NOT NULL REFERENCES products(id) ON DELETE CASCADE,
				option1_name  TEXT NOT NULL DEFAULT '',
				option1_value TEXT NOT NULL DEFAULT '',
				option2_name  TEXT NOT NULL DEFAULT '',
				option2_value TEXT NOT NULL DEFAULT '',
				option3_name  TEXT NOT NULL DEFAULT '',
				option3_value TEXT NOT NULL DEFAULT '',
				price         REAL NOT NULL DEFAULT 0,
				stock         INTEGER NOT NULL DEFAULT 0,
				available     INTEGER NOT NULL DEFAULT 1
			);

			CREATE INDEX idx_variants_product ON variants (product_id, available);
		`,
	},
	{
		Version: 3,
		Name:    "create orders with delivery and payment sub-records",
		SQL: `
			CREATE TABLE orders (
				id              TEXT PRIMARY KEY,
				number          INTEGER NOT NULL,
				business_id     TEXT NOT NULL,
				conversation_id TEXT NOT NULL,
				items           TEXT NOT NULL,
				total           REAL NOT NULL DEFAULT 0,
				created_at      TEXT NOT NULL DEFAULT (datetime('now'))
			);

			CREATE UNIQUE INDEX idx_orders_business_number ON orders (business_id, number);
			CREATE INDEX idx_orders_conversation ON orders (conversation_id);

			CREATE TABLE order_delivery (
				order_id TEXT PRIMARY KEY REFERENCES orders(id) ON DELETE CASCADE,
				method   TEXT NOT NULL,
				address  TEXT NOT NULL DEFAULT ''
			);

			CREATE TABLE order_payment (
				order_id TEXT PRIMARY KEY REFERENCES orders(id) ON DELETE CASCADE,
				method   TEXT NOT NULL,
				link_url TEXT NOT NULL DEFAULT ''
			);
		`,
	},
	{
		Version: 4,
		Name:    "create customer profiles",
		SQL: `
			CREATE TABLE customers (
				id          TEXT PRIMARY KEY,
				business_id TEXT NOT NULL,
				name        TEXT NOT NULL DEFAULT '',
				phone       TEXT NOT NULL DEFAULT '',
				created_at  TEXT NOT NULL DEFAULT (datetime('now'))
			);

			CREATE INDEX idx_customers_business ON customers (business_id);

			CREATE TABLE customer_addresses (
				id          TEXT PRIMARY KEY,
				customer_id TEXT NOT NULL REFERENCES customers(id) ON DELETE CASCADE,
				label       TEXT NOT NULL DEFAULT '',
				address     TEXT NOT NULL,
				is_default  INTEGER NOT NULL DEFAULT 0
			);

			CREATE TABLE customer_facts (
				id          TEXT PRIMARY KEY,
				customer_id TEXT NOT NULL REFERENCES customers(id) ON DELETE CASCADE,
				kind        TEXT NOT NULL,
				content     TEXT NOT NULL,
				created_at  TEXT NOT NULL DEFAULT (datetime('now'))
			);

			CREATE TABLE staff_notes (
				id          TEXT PRIMARY KEY,
				customer_id TEXT NOT NULL REFERENCES customers(id) ON DELETE CASCADE,
				author      TEXT NOT NULL DEFAULT '',
				content     TEXT NOT NULL,
				created_at  TEXT NOT NULL DEFAULT (datetime('now'))
			);
		`,
	},
}
