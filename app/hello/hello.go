// Package hello holds the greeting exposed through the load context.
package hello

// SayHello is the greeting every page can reach via loadctx.Context.
func SayHello() string {
	return "Hello from Kashvi!"
}
