// Package gate assembles the request pipeline from configuration and serves
// it over net/http.
//
// A gate runs the enabled units in a fixed order: CORS, rate limiting,
// authentication and finally the application handler. A CORS preflight is
// answered before it can consume rate limit quota or require credentials.
//
//	g, err := gate.New(ctx, cfg,
//	    gate.WithLogger(logger),
//	    gate.WithApp(upstream),
//	)
//	if err != nil {
//	    return err
//	}
//	defer g.Close()
//
//	http.ListenAndServe(cfg.Server.Address, g)
//
// Reload swaps in a pipeline built from a new configuration without
// dropping requests. The rate limit store survives a reload that leaves
// its configuration unchanged.
package gate
