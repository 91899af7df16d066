package models

const (
	STATUS_UP         = "UP"
	STATUS_DEGRADED   = "DEGRADED"
	STATUS_DOWN       = "DOWN"
	HEALTH_ISSUE_NONE = "None reported"
	//
	AZ_BLOB_CLIENT_NA       = "error: client not available, check config"
	AZ_SOURCE_HEALTH_PREFIX = "Azure blob source"
	GCS_HEALTH_PREFIX       = "Google bucket destination"
	//
	SERVICE_BUS = "Azure Service Bus"

	CONTENT_TYPE_TEXT = "text/plain; charset=utf-8"
	CONTENT_TYPE_XML  = "text/xml"
	CONTENT_TYPE_JSON = "application/json"
) // .const
