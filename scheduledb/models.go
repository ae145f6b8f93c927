package scheduledb

type Departure struct {
	BusNo   string
	Station string
	DayType string
	Seconds int64
}

type ServiceWindow struct {
	BusNo          string
	Station        string
	DayType        string
	FirstSeconds   int64
	LastSeconds    int64
	HeadwaySeconds int64
}

type ImportMetadatum struct {
	FileHash   string
	FileSource string
	ImportedAt int64
}
