// Package common provides common constants structs and variables.
package common

import "time"

// TransactionName marks a record that names the current transaction. The value has the form "category::name".
const TransactionName = "TransactionName"

// TimedOperationId marks a record produced by a timed operation, either at its start or at its completion.
const TimedOperationId = "TimedOperationId"

// TimedOperationElapsedInMs carries the elapsed milliseconds of a completed timed operation.
const TimedOperationElapsedInMs = "TimedOperationElapsedInMs"

// TimedOperationDescription carries the human readable description of a timed operation.
const TimedOperationDescription = "TimedOperationDescription"

// CounterName marks a record that increments a named counter.
const CounterName = "CounterName"

// GaugeName marks a record that reports a gauge reading.
const GaugeName = "GaugeName"

// GaugeValue carries the reading of a gauge record.
const GaugeValue = "GaugeValue"

// MessageTemplate is the reserved custom event field holding the record's message template.
const MessageTemplate = "MessageTemplate"

// LinkingMetadata is the attribute holding distributed tracing metadata that is unrolled into log attributes.
const LinkingMetadata = "newrelic.linkingmetadata"

// TypeTagKey is the key under which a structure's type tag is kept once simplified.
const TypeTagKey = "$typeTag"

// DefaultCustomEventName is the event type recorded for records that are not metrics, transactions or errors.
const DefaultCustomEventName = "LogEvent"

// DefaultBatchSizeLimit is the maximum number of records in one batch.
const DefaultBatchSizeLimit = 1000

// DefaultPeriod is the time between timer driven flushes.
const DefaultPeriod = 2 * time.Second

// DefaultSendTimeout bounds a single delivery attempt.
const DefaultSendTimeout = 40 * time.Second

// DefaultShutdownGrace bounds how long the final flush may take on shutdown.
const DefaultShutdownGrace = 10 * time.Second

// RequiredLevelCheckInterval is the lagging interval after which an idle sink performs an empty heartbeat flush.
const RequiredLevelCheckInterval = 2 * time.Minute

// NewRelicLogsAPIEndpointUS is the US Log API endpoint.
const NewRelicLogsAPIEndpointUS = "https://log-api.newrelic.com/log/v1"

// NewRelicLogsAPIEndpointEU is the EU Log API endpoint.
const NewRelicLogsAPIEndpointEU = "https://log-api.eu.newrelic.com/log/v1"

// HeaderLicenseKey authenticates with a license key.
const HeaderLicenseKey = "X-License-Key"

// HeaderInsertKey authenticates with an insert key when no license key is configured.
const HeaderInsertKey = "X-Insert-Key"

// EnvAppName is the name of the environment variable for the application name.
const EnvAppName = "NEW_RELIC_APP_NAME"

// EnvEndpoint is the name of the environment variable for the Log API endpoint.
const EnvEndpoint = "NEW_RELIC_LOG_ENDPOINT"

// NewRelicRegion is the name of the environment variable for the New Relic region.
const NewRelicRegion = "NEW_RELIC_REGION"

// EnvLicenseKey is the name of the environment variable for the license key.
const EnvLicenseKey = "LICENSE_KEY"

// EnvInsertKey is the name of the environment variable for the insert key.
const EnvInsertKey = "NEW_RELIC_INSERT_KEY"

// EnvBatchSize is the name of the environment variable for the batch size limit.
const EnvBatchSize = "NEW_RELIC_BATCH_SIZE"

// EnvPeriod is the name of the environment variable for the flush period, e.g. "2s".
const EnvPeriod = "NEW_RELIC_PERIOD"

// EnvMinimumLevel is the name of the environment variable for the minimum accepted level.
const EnvMinimumLevel = "NEW_RELIC_MIN_LEVEL"

// SecretOCID is the name of the environment variable holding the OCI Vault secret OCID of the license key.
const SecretOCID = "SECRET_OCID"

// VaultRegion is the name of the environment variable holding the OCI Vault region.
const VaultRegion = "VAULT_REGION"

// DebugEnabled is the name of the environment variable for enabling debug mode.
const DebugEnabled = "DEBUG_ENABLED"

// LicenseKey is the field holding the license key when the vault secret is a JSON object.
const LicenseKey = "licenseKey"

// EnvConfigFile is the name of the environment variable pointing at a YAML configuration file.
const EnvConfigFile = "NEW_RELIC_CONFIG_FILE"

// EnvDelivery is the name of the environment variable selecting the delivery backend, "http" or "client".
const EnvDelivery = "NEW_RELIC_DELIVERY"
