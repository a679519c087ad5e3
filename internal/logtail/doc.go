// Package logtail reads the end of feedline's log file for the logs command.
//
// The viewer owns the terminal, so its logs go to a file. Tail extracts the
// last N lines with a ring buffer in one pass, using memory proportional to
// N rather than to the file. Filter drops events below a level and Render
// prints JSON events through zerolog's console writer so they read the same
// as console-format logs.
//
// Example usage:
//
//	lines, err := logtail.Tail(path, 200)
//	if err != nil {
//		return err
//	}
//	return logtail.Render(os.Stdout, logtail.Filter(lines, zerolog.WarnLevel), true)
package logtail
