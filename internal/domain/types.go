package domain

type GeneratorDriverType int

const (
	Postgres GeneratorDriverType = iota + 1
	SQLite
	Memory
)

var DriverNameToType = map[string]GeneratorDriverType{
	"pg":         Postgres,
	"postgres":   Postgres,
	"postgresql": Postgres,
	"postgre":    Postgres,
	"pgx":        Postgres,
	"sqlite":     SQLite,
	"sqlite3":    SQLite,
	"memory":     Memory,
	"mem":        Memory,
}

type OutputDriverType int

const (
	Console OutputDriverType = iota
	Kafka
	Redis
	AMQP
	Hub
)

var OutDriverNameToType = map[string]OutputDriverType{
	"console":  Console,
	"kafka":    Kafka,
	"redis":    Redis,
	"amqp":     AMQP,
	"rabbitmq": AMQP,
	"hub":      Hub,
}
