// Package types provides shared type definitions for archdoc.
//
// This package defines the domain records that flow between the walker, the
// scheduler, the result store and the report builder.
//
// # Identities
//
// Every source file and directory is identified by its normalized,
// slash-separated path relative to the project root. The root directory is
// identified by RootID ("."):
//
//	id := types.NormalizeID("Sub\\c.cs") // "Sub/c.cs"
//	parent := types.ParentID(id)        // "Sub"
//
// # Results
//
// AnalysisResult holds the text produced for one identity together with its
// status:
//
//	result := types.AnalysisResult{
//	    ID:          "Sub/c.cs",
//	    Kind:        types.KindFile,
//	    Status:      types.StatusSuccess,
//	    Text:        analysis,
//	    CompletedAt: time.Now(),
//	}
//
// A Failed result carries the ErrorKind and message of the failure that ended
// processing for that identity. Failed results are valid input for directory
// aggregation; they are rendered as explicit failure markers.
//
// # Error Records
//
// ErrorRecord is an additive log entry, one per failed attempt sequence:
//
//	rec := types.ErrorRecord{
//	    ID:      "b.cs",
//	    Attempt: 3,
//	    Kind:    types.ErrorKindTransient,
//	    Message: "api error 503",
//	}
//
// Records never replace results; they exist so the operator can follow up on
// every failure after the run.
package types
