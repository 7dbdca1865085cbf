package metrickit

import (
	"slices"

	"github.com/go-viper/mapstructure/v2"
)

// MetaData holds the fields every diagnostic's diagnosticMetaData carries
type MetaData struct {
	BundleIdentifier string `mapstructure:"bundleIdentifier"`
	AppVersion       string `mapstructure:"appVersion"`
	AppBuildVersion  string `mapstructure:"appBuildVersion"`
	OSVersion        string `mapstructure:"osVersion"`
}

var commonKeys = []string{"bundleIdentifier", "appVersion", "appBuildVersion", "osVersion"}

// CrashMetaData is the metadata of an MXCrashDiagnostic
type CrashMetaData struct {
	MetaData      `mapstructure:",squash"`
	ExceptionType int    `mapstructure:"exceptionType"`
	ExceptionCode int64  `mapstructure:"exceptionCode"`
	Signal        int    `mapstructure:"signal"`
	Termination   string `mapstructure:"terminationReason"`
}

// DiskWriteMetaData is the metadata of an MXDiskWriteExceptionDiagnostic
type DiskWriteMetaData struct {
	MetaData     `mapstructure:",squash"`
	WritesCaused string `mapstructure:"writesCaused"`
}

// CPUMetaData is the metadata of an MXCPUExceptionDiagnostic
type CPUMetaData struct {
	MetaData         `mapstructure:",squash"`
	TotalCPUTime     string `mapstructure:"totalCPUTime"`
	TotalSampledTime string `mapstructure:"totalSampledTime"`
}

// AppLaunchMetaData is the metadata of an MXAppLaunchDiagnostic
type AppLaunchMetaData struct {
	MetaData       `mapstructure:",squash"`
	LaunchDuration string `mapstructure:"launchDuration"`
}

// HangMetaData is the metadata of an MXHangDiagnostic
type HangMetaData struct {
	MetaData     `mapstructure:",squash"`
	HangDuration string `mapstructure:"hangDuration"`
}

// CrashMetaData decodes the diagnostic's metadata as a crash diagnostic
func (d *Diagnostic) CrashMetaData() (*CrashMetaData, error) {
	var md CrashMetaData
	if err := d.decode(&md, "exceptionType", "exceptionCode", "signal"); err != nil {
		return nil, err
	}
	return &md, nil
}

// DiskWriteMetaData decodes the diagnostic's metadata as a disk write exception diagnostic
func (d *Diagnostic) DiskWriteMetaData() (*DiskWriteMetaData, error) {
	var md DiskWriteMetaData
	if err := d.decode(&md, "writesCaused"); err != nil {
		return nil, err
	}
	return &md, nil
}

// CPUMetaData decodes the diagnostic's metadata as a CPU exception diagnostic
func (d *Diagnostic) CPUMetaData() (*CPUMetaData, error) {
	var md CPUMetaData
	if err := d.decode(&md, "totalCPUTime", "totalSampledTime"); err != nil {
		return nil, err
	}
	return &md, nil
}

// AppLaunchMetaData decodes the diagnostic's metadata as an app launch diagnostic
func (d *Diagnostic) AppLaunchMetaData() (*AppLaunchMetaData, error) {
	var md AppLaunchMetaData
	if err := d.decode(&md, "launchDuration"); err != nil {
		return nil, err
	}
	return &md, nil
}

// HangMetaData decodes the diagnostic's metadata as a hang diagnostic
func (d *Diagnostic) HangMetaData() (*HangMetaData, error) {
	var md HangMetaData
	if err := d.decode(&md, "hangDuration"); err != nil {
		return nil, err
	}
	return &md, nil
}

func (d *Diagnostic) decode(out any, required ...string) error {
	for _, key := range slices.Concat(commonKeys, required) {
		if v, ok := d.MetaData[key]; !ok || v == nil {
			return &MalformedReportError{Field: "diagnosticMetaData." + key, Entry: d.Entry()}
		}
	}

	dec, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		WeaklyTypedInput: true,
		Result:           out,
	})
	if err != nil {
		return err
	}
	if err := dec.Decode(d.MetaData); err != nil {
		return &MalformedReportError{Field: "diagnosticMetaData", Entry: d.Entry(), Err: err}
	}
	return nil
}
