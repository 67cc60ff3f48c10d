package config

import (
	"fmt"
	"os"
	"path"

	"gopkg.in/yaml.v2"
)

// ReadYAML looks for the file in the working directory, then in SITE_DATA_DIR.
// Messages are collected to be logged once logging is configured
func ReadYAML(configFilename string, outMsg []string, outStruct interface{}) ([]string, string, bool) {
	var configFilePath string
	wd, _ := os.Getwd()
	outMsg = append(outMsg, fmt.Sprintf("Current working directory is %v", wd))

	siteDataDir := os.Getenv("SITE_DATA_DIR")

	if _, err := os.Stat(configFilename); err == nil {
		configFilePath = configFilename
	} else {
		if siteDataDir == "" {
			outMsg = append(outMsg, fmt.Sprintf("can't find config file %v", configFilename))
			return outMsg, "", false
		}
		outMsg = append(outMsg, fmt.Sprintf("SITE_DATA_DIR is %v", siteDataDir))
		configFilePath = path.Join(siteDataDir, configFilename)
	}

	outMsg = append(outMsg, fmt.Sprintf("reading config values from %v", configFilePath))

	yamlbytes, err := os.ReadFile(configFilePath)
	if err != nil {
		outMsg = append(outMsg, fmt.Sprintf("Failed init %v:\nExit", err))
		return outMsg, "", false
	}
	if err = yaml.UnmarshalStrict(yamlbytes, outStruct); err != nil {
		outMsg = append(outMsg, fmt.Sprintf("Error while reading config file %v: %v\n", configFilePath, err))
		return outMsg, "", false
	}
	return outMsg, siteDataDir, true
}
