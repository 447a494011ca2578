// Package query answers questions over a module's indexed documents.
//
// The engine retrieves summary hits from the module's vector
// collection, resolves each hit to its raw chunk payload, and asks the
// chat model to answer from that context. Retrieval that comes back
// empty short-circuits to a fixed fallback answer without a generation
// call.
package query
