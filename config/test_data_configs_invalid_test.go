package config

type testDataInvalidConfig struct {
	name         string
	envVarsError string
	fileError    string
	envVars      map[string]string
	fileContent  string
}

func makeInvalidConfigs() []testDataInvalidConfig {
	return []testDataInvalidConfig{
		makeInvalidConfigPortOutOfRange(),
		makeInvalidConfigAdminPortSameAsPort(),
		makeInvalidConfigAdminPortSameAsDefaultPort(),
		makeInvalidConfigPrometheusPortConflict(),
		makeInvalidConfigBadMode(),
		makeInvalidConfigBadFormat(),
		makeInvalidConfigBadSkipStatus(),
		makeInvalidConfigBadIgnoreURLPattern(),
		makeInvalidConfigUnknownRecordPreset(),
		makeInvalidConfigTargetURLWithQuery(),
		makeInvalidConfigRedisBadScheme(),
		makeInvalidConfigRedisWithCassetteDir(),
	}
}

func makeInvalidConfigPortOutOfRange() testDataInvalidConfig {
	c := testDataInvalidConfig{name: "port above 65535"}
	c.envVarsError = "port must be between 1 and 65535"
	c.envVars = map[string]string{"MAGNETO_PORT": "70000"}
	c.fileContent = `
[Main]
Port = 70000
`
	return c
}

func makeInvalidConfigAdminPortSameAsPort() testDataInvalidConfig {
	c := testDataInvalidConfig{name: "admin port same as proxy port"}
	c.envVarsError = errAdminPortSameAsProxyPort.Error()
	c.envVars = map[string]string{"MAGNETO_PORT": "9000", "MAGNETO_ADMIN_PORT": "9000"}
	c.fileContent = `
[Main]
Port = 9000
AdminPort = 9000
`
	return c
}

func makeInvalidConfigAdminPortSameAsDefaultPort() testDataInvalidConfig {
	c := testDataInvalidConfig{name: "admin port same as default proxy port"}
	c.envVarsError = errAdminPortSameAsProxyPort.Error()
	c.envVars = map[string]string{"MAGNETO_ADMIN_PORT": "8888"}
	c.fileContent = `
[Main]
AdminPort = 8888
`
	return c
}

func makeInvalidConfigPrometheusPortConflict() testDataInvalidConfig {
	c := testDataInvalidConfig{name: "Prometheus port same as proxy port"}
	c.envVarsError = errPrometheusPortSameAsProxyPort.Error()
	c.envVars = map[string]string{"MAGNETO_PROMETHEUS_ENABLED": "true", "MAGNETO_PROMETHEUS_PORT": "8888"}
	c.fileContent = `
[Prometheus]
Enabled = true
Port = 8888
`
	return c
}

func makeInvalidConfigBadMode() testDataInvalidConfig {
	c := testDataInvalidConfig{name: "unknown mode"}
	c.envVarsError = `"rewind" is not a valid mode`
	c.envVars = map[string]string{"MAGNETO_MODE": "rewind"}
	c.fileContent = `
[Main]
Mode = rewind
`
	return c
}

func makeInvalidConfigBadFormat() testDataInvalidConfig {
	c := testDataInvalidConfig{name: "unknown cassette format"}
	c.envVarsError = `"yaml" is not a valid cassette format`
	c.envVars = map[string]string{"MAGNETO_FORMAT": "yaml"}
	c.fileContent = `
[Main]
Format = yaml
`
	return c
}

func makeInvalidConfigBadSkipStatus() testDataInvalidConfig {
	c := testDataInvalidConfig{name: "bad skipped status code"}
	c.envVarsError = `"abc" is not a valid HTTP status code`
	c.envVars = map[string]string{"MAGNETO_RECORD_SKIP_STATUS": "500,abc"}
	c.fileContent = `
[Record]
SkipStatus = 500,abc
`
	return c
}

func makeInvalidConfigBadIgnoreURLPattern() testDataInvalidConfig {
	c := testDataInvalidConfig{name: "bad ignore-URL pattern"}
	c.envVarsError = `invalid ignore-URL pattern "(unclosed"`
	c.envVars = map[string]string{"MAGNETO_RECORD_IGNORE_URL": "(unclosed"}
	c.fileContent = `
[Record]
IgnoreURL = (unclosed
`
	return c
}

func makeInvalidConfigUnknownRecordPreset() testDataInvalidConfig {
	c := testDataInvalidConfig{name: "unknown recording preset"}
	c.envVarsError = `unknown recording preset "everything"`
	c.envVars = map[string]string{"MAGNETO_RECORD_PRESET": "images,everything"}
	c.fileContent = `
[Record]
Preset = everything
`
	return c
}

func makeInvalidConfigTargetURLWithQuery() testDataInvalidConfig {
	c := testDataInvalidConfig{name: "target URL with query string"}
	c.envVarsError = errTargetURLWithPath.Error()
	c.envVars = map[string]string{"MAGNETO_TARGET_URL": "http://api.example.com/?x=1"}
	c.fileContent = `
[Main]
TargetURL = "http://api.example.com/?x=1"
`
	return c
}

func makeInvalidConfigRedisBadScheme() testDataInvalidConfig {
	c := testDataInvalidConfig{name: "Redis URL with wrong scheme"}
	c.envVarsError = `Redis URL scheme must be redis or rediss, not "http"`
	c.envVars = map[string]string{"MAGNETO_REDIS_URL": "http://localhost:6379"}
	c.fileContent = `
[Redis]
URL = http://localhost:6379
`
	return c
}

func makeInvalidConfigRedisWithCassetteDir() testDataInvalidConfig {
	c := testDataInvalidConfig{name: "Redis URL and cassette directory"}
	c.envVarsError = errCassetteDirWithRedis.Error()
	c.envVars = map[string]string{"MAGNETO_REDIS_URL": "redis://localhost:6379", "MAGNETO_CASSETTE_DIR": "./tapes"}
	c.fileContent = `
[Main]
CassetteDir = ./tapes

[Redis]
URL = redis://localhost:6379
`
	return c
}
