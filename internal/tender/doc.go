// Package tender defines the procurement listing model and the ports the
// scrape pipeline depends on: the browser session, the classifier, blob
// storage, and notification publishers. Pure predicates over listings (date
// cutoff and retention) also live here so every stage shares one definition.
package tender
