package domain

// BackendDriver is the relational engine that hosts the wide tables.
type BackendDriver string

const (
	BackendSQLite   BackendDriver = "sqlite"
	BackendPostgres BackendDriver = "postgres"
	BackendMySQL    BackendDriver = "mysql"
)

// BackendConfig holds what is needed to reach the backend.
// The password is resolved separately through a secret store.
type BackendConfig struct {
	Driver   BackendDriver `json:"driver" mapstructure:"driver"`
	Path     string        `json:"path" mapstructure:"path"` // sqlite file
	Host     string        `json:"host" mapstructure:"host"`
	Port     int           `json:"port" mapstructure:"port"`
	Database string        `json:"database" mapstructure:"database"`
	Username string        `json:"username" mapstructure:"user"`
	SSLMode  string        `json:"sslMode" mapstructure:"ssl_mode"`
	// PasswordRef names the secret holding the password, e.g. "env:PGPASSWORD".
	PasswordRef string `json:"passwordRef" mapstructure:"password_ref"`
}
