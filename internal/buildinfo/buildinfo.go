// Package buildinfo carries version metadata stamped at link time via
// -ldflags, surfaced on the feedmill /version endpoint.
package buildinfo

var (
    Version = "dev"
    Commit  = ""
    BuiltAt = ""
)

// Info returns the stamped fields in the shape the version endpoint serves.
func Info() map[string]string {
    return map[string]string{
        "version": Version,
        "commit":  Commit,
        "builtAt": BuiltAt,
    }
}
