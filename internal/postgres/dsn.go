package postgres

import (
	"fmt"
	"strings"
)

// DSN describes a libpq key=value connection string. When Host is a
// directory path, libpq connects over the unix-domain socket inside it.
type DSN struct {
	Host            string
	Port            int
	User            string
	Password        string
	DBName          string
	ApplicationName string
}

func (d *DSN) String() string {
	var fields []string
	if d.Host != "" {
		fields = append(fields, fmt.Sprintf("host=%s", d.Host))
	}
	if d.Port != 0 {
		fields = append(fields, fmt.Sprintf("port=%d", d.Port))
	}
	if d.User != "" {
		fields = append(fields, fmt.Sprintf("user=%s", d.User))
	}
	if d.Password != "" {
		fields = append(fields, fmt.Sprintf("password=%s", d.Password))
	}
	if d.DBName != "" {
		fields = append(fields, fmt.Sprintf("dbname=%s", quoteDSNValue(d.DBName)))
	}
	if d.ApplicationName != "" {
		fields = append(fields, fmt.Sprintf("application_name=%s", d.ApplicationName))
	} else {
		fields = append(fields, "application_name=ysql-upgrade")
	}
	return strings.Join(fields, " ")
}

// quoteDSNValue quotes a value for use in a key=value connection string
// when it contains characters libpq would otherwise misparse.
func quoteDSNValue(value string) string {
	if !strings.ContainsAny(value, ` '\`) {
		return value
	}
	escaped := strings.NewReplacer(`\`, `\\`, `'`, `\'`).Replace(value)
	return "'" + escaped + "'"
}
