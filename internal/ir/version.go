package ir

// SchemaVersion is the version of the spec format. It is part of every
// schema hash.
const SchemaVersion = "1"
