// Package globals holds flags shared by every CLI subcommand.
package globals

// Globals carries flags common to every subcommand.
type Globals struct {
	Verbose bool `help:"Enable verbose logging" short:"v"`
}
