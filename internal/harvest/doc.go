// Package harvest defines the document model, collaborator interfaces and
// error taxonomy shared by the fetch, extract and persistence stages of the
// page harvester.
package harvest
