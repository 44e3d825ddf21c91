// Package model defines the data carried through a leadscan run.
//
// A RawListingRecord is one row scraped from the county's foreclosure
// notice search. The pipeline wraps it in an EnrichedLead and fills in the
// normalized address, coordinates, assessor owner and people-search
// contacts stage by stage. Every stage either advances the lead's State or
// records a StageFailure; a failed lookup never aborts the run.
//
// RunSummary counts how far the leads of one run got and keeps the page
// diagnostics of every listing strategy tried, which is what an operator
// reads when the portal changes its markup or starts blocking.
//
// All types serialize to JSON for reports and the lead database.
package model
