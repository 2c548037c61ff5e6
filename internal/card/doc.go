// Package card defines operation cards: the declarative description of one
// capability, its input/output schemas, its routing policy and the
// per-route configuration the engine needs to execute it.
//
// Cards are produced by internal/registry and are read-only once loaded;
// nothing in the engine mutates a card after registry construction.
package card
