package util

import (
	"fmt"
	"strings"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/project-sunbird/sunbird-lock-service/lib/lockmgr"
	"github.com/project-sunbird/sunbird-lock-service/lib/logger"
	"github.com/project-sunbird/sunbird-lock-service/lib/resource"
	"github.com/project-sunbird/sunbird-lock-service/lib/serializer"
)

const (
	// Wrap is the number of characters to Wrap the help text at
	Wrap int = 50
)

// WrapString wraps a string at Wrap characters
func WrapString(text string) string {
	var wrappedLines []string
	var currentLine strings.Builder
	lineWidth := 0

	for _, word := range strings.Fields(text) {
		wordWidth := len(word)

		// Check if we need to wrap
		if lineWidth > 0 && lineWidth+1+wordWidth > Wrap {
			wrappedLines = append(wrappedLines, currentLine.String())
			currentLine.Reset()
			lineWidth = 0
		}

		// Add space before word (if not first word on line)
		if lineWidth > 0 {
			currentLine.WriteString(" ")
			lineWidth++
		}

		// Add the word
		currentLine.WriteString(word)
		lineWidth += wordWidth
	}

	// Add any remaining text
	if currentLine.Len() > 0 {
		wrappedLines = append(wrappedLines, currentLine.String())
	}

	return strings.Join(wrappedLines, "\n")
}

// InitConfig initializes configuration from environment variables
func InitConfig() {
	// load env files
	_ = godotenv.Load(".env")
	_ = godotenv.Load(".env.local")

	// initialize viper
	viper.SetEnvPrefix("sblock")
	viper.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	viper.AutomaticEnv() // read in environment variables that match
}

// BindCommandFlags binds a command's flags to viper
func BindCommandFlags(cmd *cobra.Command) error {
	return viper.BindPFlags(cmd.Flags())
}

// GetSerializer creates a serializer based on configuration
func GetSerializer() (serializer.ISerializer, error) {
	switch viper.GetString("serializer") {
	case "json":
		return serializer.NewJSONSerializer(), nil
	case "gob":
		return serializer.NewGOBSerializer(), nil
	default:
		return nil, fmt.Errorf("invalid serializer %s", viper.GetString("serializer"))
	}
}

// GetLogger creates a logger for the given component based on configuration
func GetLogger(component string) (logger.ILogger, error) {
	level, err := logger.ParseLevel(viper.GetString("log-level"))
	if err != nil {
		return nil, err
	}
	return logger.New(component, level), nil
}

// GetManagerConfig reads the lock manager configuration from viper
func GetManagerConfig() lockmgr.Config {
	conf := lockmgr.DefaultConfig()
	if lease := viper.GetInt("lease"); lease > 0 {
		conf.LeaseSecond = lease
	}
	return conf
}

// GetResourceClientConfig reads the owning system's API settings from viper
func GetResourceClientConfig() resource.ClientConfig {
	conf := resource.DefaultClientConfig()
	conf.BaseURL = viper.GetString("content-api")
	if timeout := viper.GetInt("timeout"); timeout > 0 {
		conf.TimeoutSecond = timeout
	}
	if retries := viper.GetInt("retries"); retries > 0 {
		conf.RetryCount = retries
	}
	return conf
}

// GetCaller builds the caller identity from viper
func GetCaller() lockmgr.Caller {
	caller := lockmgr.Caller{
		UserID:   viper.GetString("user"),
		DeviceID: viper.GetString("device"),
		UserName: viper.GetString("user-name"),
	}
	if caller.UserName == "" {
		caller.UserName = caller.UserID
	}
	caller.Headers = map[string]string{
		"x-authenticated-userid": caller.UserID,
		"x-device-id":            caller.DeviceID,
	}
	return caller
}
