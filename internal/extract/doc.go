// Package extract turns fetched portal tabs into record fragments and merges
// them into one tender.Record.
//
// Every extractor is a pure function over already-fetched markup. Labels are
// translated through fixed tables; an unknown label is lowercased with spaces
// replaced by underscores, so new portal fields pass through instead of
// failing extraction. A missing container that the portal layout always
// carries is reported as ErrStructure.
package extract
