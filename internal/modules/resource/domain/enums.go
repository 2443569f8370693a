//go:generate go run github.com/abice/go-enum --file=$GOFILE --names --nocase

package domain

// SourceType is the kind of external platform a resource lives on
// ENUM(forum,stream,video,blog)
type SourceType string

// EventKind classifies an event produced by a source
// ENUM(post,video,live,deleted)
type EventKind string

// AppEnv represents the application environment
// ENUM(local,production,development,testing)
type AppEnv string
