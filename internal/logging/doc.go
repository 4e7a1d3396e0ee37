// Package logging configures the zap logger shared by the gree CLI.
//
// Logging is silent unless a level is given, either with --log-level or
// through the GREE_LOG_LEVEL environment variable. Output goes to stderr so
// that command output on stdout stays parseable:
//
//	if err := logging.Initialize(level); err != nil {
//	    return err
//	}
//	defer logging.Sync()
//
//	client, err := gree.NewClient(gree.WithLogger(logging.Named("client")))
package logging
