package mcpserver

const recordFormatURI = "shelf://record-format"

// RecordFormat describes how Shelf stores records, for LLM consumers that
// create or update them.
const RecordFormat = `# Shelf Record Format

Shelf keeps named collections of records. Each record has an opaque string
id assigned on insert and is either structured or binary.

## Structured records

- Passed as the ` + "`document`" + ` argument: a JSON object with string keys.
- Stored as a JSON or YAML file, depending on the server configuration.
- Arrays, scalars and null are not valid top-level documents.

## Binary records

- Passed as the ` + "`data`" + ` argument: standard base64 with padding.
- Stored byte for byte in a ` + "`.bin`" + ` file.
- Returned by get_record and list_records in the ` + "`blob`" + ` field, base64 encoded.

## Rules

1. Collection names start with a letter or digit and contain only letters,
   digits, ` + "`.`" + `, ` + "`_`" + ` and ` + "`-`" + `.
2. Inserting into a collection that does not exist creates it.
3. Ids are never reused within a collection while the record exists. Do not
   construct ids yourself; use the id returned by insert_record.
4. update_record replaces the whole body. Sending ` + "`data`" + ` for a structured
   record (or ` + "`document`" + ` for a binary one) switches its representation.
5. list_records returns records in insertion order. Use ` + "`skip`" + ` and ` + "`limit`" + `
   to page through large collections.
`
