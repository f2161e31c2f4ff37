// Package ctxdex embeds the ctxdex retrieval engine in a Go program.
//
// The client stores tenant-scoped context records in SQLite or Redis and answers
// queries through the retrieval cascade: hybrid vector and full-text fusion first,
// then substring, n-gram and recency fallbacks. Without an embedder every vector
// comes from the local 384-dimensional hash embedder.
//
//	client, _ := ctxdex.New(ctx, ctxdex.WithSQLite("ctxdex.db"))
//	defer client.Close()
//
//	_, _ = client.Upsert(ctx, "acme", ctxdex.Context{ID: "faq-1", Title: "Refunds", Body: "..."})
//	res, _ := client.Retrieve(ctx, ctxdex.RetrieveRequest{Tenant: "acme", Query: "refund"})
//
// Place search adds a hard radius around a point:
//
//	res, _ := client.RetrievePlaces(ctx, ctxdex.PlacesRequest{
//	    RetrieveRequest: ctxdex.RetrieveRequest{Tenant: "acme", Query: "coffee"},
//	    Lat: 40.7128, Lon: -74.006, MaxDistanceKm: 5,
//	})
package ctxdex
