package domain

// KeyPrefix namespaces every key the service writes to a shared key-value store.
var KeyPrefix = "ctxdex:"
