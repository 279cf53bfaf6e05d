package workflow

// TaskType tags the work a queue entry carries.
type TaskType string

const (
	TaskIngestScenario     TaskType = "INGEST_SCENARIO"
	TaskIngestLocalProduct TaskType = "INGEST_LOCAL_PROD"
	TaskDeleteScenario     TaskType = "DELETE_SCENARIO"
	TaskAddProduct         TaskType = "ADD_PRODUCT"
)

// Task is one unit of work for the worker pool. ScenarioID and Scripts
// apply to every type; the file paths only to the local-product and
// add-product variants.
type Task struct {
	Type       TaskType
	ScenarioID int64
	Scripts    []string

	// payload for TaskIngestLocalProduct and TaskAddProduct
	NcnID           string
	Dir             string
	Metadata        string
	Data            string
	CatRegistration bool
}

// Worker-published status strings, part of the external contract like
// the ones in the store package.
const (
	statusGeneratingURLs = "GENERATING URLS"
	statusIngesting      = "INGESTING"
	statusLocalIngest    = "LOCAL FILE INGESTION"
	statusAddProduct     = "ADD PRODUCT"
	statusDeregistering  = "DELETE: De-reg products."
	statusDeleting       = "DELETING"
)
