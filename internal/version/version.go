package version

// Version is the current version of retail-etl.
// Can be overridden at build time with -ldflags "-X ...version.Version=..."
var Version = "0.4.0"

// Name is the application name.
const Name = "retail-etl"

// Description is a short description of the application.
const Description = "Schema-mapping ETL export for retail analytics datasets"
