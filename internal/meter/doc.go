// Package meter provides the device registry and persistence for ShellyManager.
//
// A meter is one physical energy counter, identified by a unique name and
// reachable at an address whose scheme selects the device family. Every
// meter has exactly one Adapter in the Registry. Adapters measure
// consumption in intervals: an interval is opened once (AttemptStartInterval)
// and every CloseInterval returns the energy used since the last close and
// immediately opens the next interval.
//
// # Architecture
//
//	┌──────────────────────────────────────────────────────────────┐
//	│                        meter package                         │
//	│                                                              │
//	│  ┌─────────────────┐  ListActive  ┌────────────────────────┐ │
//	│  │    Registry     │◀─────────────│   SQLiteRepository     │ │
//	│  │  (registry.go)  │              │   (repository.go)      │ │
//	│  │ • upsert by name│              │ • meters table         │ │
//	│  │ • ordered slice │              │ • readings batch insert│ │
//	│  │ • RWMutex       │              │ • last-fetched updates │ │
//	│  └────────┬────────┘              └────────────────────────┘ │
//	│           │ AdapterFactory                                   │
//	│           ▼                                                  │
//	│  ┌─────────────────┐                                         │
//	│  │ Adapter + Counter│  shelly / shellymqtt / modbus bridges  │
//	│  │ Interval         │                                        │
//	│  └─────────────────┘                                         │
//	└──────────────────────────────────────────────────────────────┘
//
// # Usage
//
//	repo := meter.NewSQLiteRepository(db.DB)
//	registry := meter.NewRegistry(bridges.NewAdapterFactory(cfg, mqttClient))
//	registry.SetLogger(log)
//
//	if err := registry.Refresh(ctx, repo); err != nil {
//	    return err
//	}
//	for _, a := range registry.All() {
//	    reading, err := a.CloseInterval(ctx)
//	    ...
//	}
//
// # Thread Safety
//
// Registry methods are safe for concurrent use. Adapters guard their own
// interval state; CounterInterval is safe for concurrent use.
package meter
