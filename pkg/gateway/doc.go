// Package gateway assembles the event log, the operation registry, the
// authentication negotiator and the HTTP server into one facade.
//
// A typical application creates a Gateway from its configuration,
// registers commands and queries, and calls Listen:
//
//	gw, err := gateway.New(ctx, cfg, gateway.WithInitialState(eventlog.State{"users": []any{}}))
//	if err != nil {
//		return err
//	}
//	defer gw.Close(context.Background())
//
//	gw.RegisterCommand("addUser", userAdded, nil)
//	port, err := gw.Listen(ctx)
package gateway
