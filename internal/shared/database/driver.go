//go:generate go run github.com/abice/go-enum --file=$GOFILE --names --nocase

package database

// Driver selects the SQL backend
// ENUM(sqlite,postgres)
type Driver string
