package config

type WorkerKeyStruct struct {
	ExportRowsQueue string
}

var WorkerKey = &WorkerKeyStruct{
	ExportRowsQueue: "export_rows_queue",
}
