package config

import "time"

const (
	// Registries
	NetworkCapacity = 200 // Maximum tracked networks
	StationCapacity = 300 // Maximum tracked stations
	DeviceCapacity  = 200 // Maximum tracked BLE peripherals
	LockWait        = 5 * time.Millisecond

	// Capture
	FrameQueueLen  = 256 // Bounded hand-off between radio callback and aggregator
	AdvertQueueLen = 128
	SnapLen        = 2048 // pcap snapshot length
	DefaultFloor   = -90  // dBm

	// Export / control channel
	DefaultMTU     = 185
	MinMTU         = 23
	MaxMTU         = 517
	ExportTimeout  = 10 * time.Second
	ListSizePeriod = time.Second // How often the list-size string is checked for change

	// Housekeeping
	HousekeepInterval = time.Second
	SweepInterval     = 30 * time.Second
	TelemetryInterval = 10 * time.Second

	// Demo mode
	DemoNetworks = 12
	DemoStations = 25
	DemoDevices  = 10

	// Monitor
	TargetFPS      = 4  // Dashboard refreshes per second
	SampleInterval = time.Second
	HistoryLen     = 60 // RSSI samples kept per record

	// App
	AppName    = "AIRWATCH"
	AppVersion = "1.0"
)
