// Package datasource loads raw option quotes for a symbol and trading date.
//
// Quotes can come from several places and the Chain tries them in a fixed
// order, reporting which one answered:
//
//	local   CSV extracts under <root>/raw/optionm/<symbol>/<year>/
//	cache   previously fetched WRDS pulls (file tier, optional redis tier)
//	wrds    the OptionMetrics tables on the WRDS PostgreSQL server
//	sample  a bundled CSV used when nothing else is available
//
// Successful WRDS pulls are written back to every cache tier. File cache
// entries carry a JSON sidecar with a BLAKE2b-256 checksum of the CSV body;
// an entry whose checksum does not match is treated as a miss.
package datasource
