// Package influxdb stores the fleet event history in InfluxDB v2.
//
// Every outbound notification (approval requests, assignments, firmware
// syncs) is also written as a fleet_event point tagged by kind and serial,
// so operators can chart fleet activity over time. Writes are non-blocking
// and batched per influxdb.batch_size / influxdb.flush_interval; batch
// failures arrive through SetOnError.
package influxdb
