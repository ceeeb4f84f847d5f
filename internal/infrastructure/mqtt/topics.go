package mqtt

import (
	"fmt"
	"strings"
)

// TopicPrefix is the base for every topic ShellyManager publishes.
const TopicPrefix = "shellymanager"

// Topics provides builders for the MQTT topics ShellyManager publishes and
// the Shelly Gen2 topics it subscribes to.
//
//	topics := mqtt.Topics{}
//	topics.Reading("kitchen")                       // shellymanager/reading/kitchen
//	topics.ShellySwitchStatus("shellies/garage", 0) // shellies/garage/status/switch:0
type Topics struct{}

// SystemStatus returns the online/offline status topic (also the LWT topic).
//
// Example: shellymanager/status
func (Topics) SystemStatus() string {
	return TopicPrefix + "/status"
}

// Reading returns the retained per-meter topic carrying the latest closed interval.
//
// Example: shellymanager/reading/kitchen
func (Topics) Reading(meterName string) string {
	return fmt.Sprintf("%s/reading/%s", TopicPrefix, SanitizeSegment(meterName))
}

// Cycle returns the topic carrying one summary per fetch cycle.
//
// Example: shellymanager/cycle
func (Topics) Cycle() string {
	return TopicPrefix + "/cycle"
}

// Scheduler returns the retained topic carrying the scheduler state.
//
// Example: shellymanager/scheduler
func (Topics) Scheduler() string {
	return TopicPrefix + "/scheduler"
}

// SchedulerCommand returns the topic accepting "start" and "stop" commands.
//
// Example: shellymanager/scheduler/set
func (Topics) SchedulerCommand() string {
	return TopicPrefix + "/scheduler/set"
}

// ShellySwitchStatus returns the status topic a Shelly Gen2 device publishes
// for one switch component under its configured topic prefix.
//
// Example: shellies/garage/status/switch:0
func (Topics) ShellySwitchStatus(devicePrefix string, switchID int) string {
	return fmt.Sprintf("%s/status/switch:%d", strings.TrimSuffix(devicePrefix, "/"), switchID)
}

// ShellyOnline returns the topic a Shelly Gen2 device publishes its
// online flag to.
//
// Example: shellies/garage/online
func (Topics) ShellyOnline(devicePrefix string) string {
	return strings.TrimSuffix(devicePrefix, "/") + "/online"
}

// SanitizeSegment makes s safe to use as a single topic level by replacing
// wildcard characters and separators.
func SanitizeSegment(s string) string {
	r := strings.NewReplacer("/", "_", "+", "_", "#", "_", " ", "_")
	return r.Replace(s)
}
