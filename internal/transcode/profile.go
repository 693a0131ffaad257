package transcode

import (
	"errors"
	"fmt"
	"os"
	"regexp"

	"gopkg.in/yaml.v3"
)

// Profile is one target rendition.
type Profile struct {
	Name         string `yaml:"name"`
	Width        int    `yaml:"width"`
	Height       int    `yaml:"height"`
	VideoBitrate string `yaml:"videoBitrate"`
}

func DefaultProfiles() []Profile {
	return []Profile{
		{Name: "1080p", Width: 1920, Height: 1080, VideoBitrate: "2000k"},
		{Name: "720p", Width: 1280, Height: 720, VideoBitrate: "1000k"},
		{Name: "480p", Width: 854, Height: 480, VideoBitrate: "500k"},
	}
}

type profileFile struct {
	Profiles []Profile `yaml:"profiles"`
}

// LoadProfiles reads the ordered profile list from a YAML file.
// An empty path yields the defaults.
func LoadProfiles(path string) ([]Profile, error) {
	if path == "" {
		return DefaultProfiles(), nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read profiles: %w", err)
	}

	var f profileFile
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("parse profiles %s: %w", path, err)
	}
	if err := ValidateProfiles(f.Profiles); err != nil {
		return nil, fmt.Errorf("profiles %s: %w", path, err)
	}
	return f.Profiles, nil
}

var bitrateRe = regexp.MustCompile(`^[1-9][0-9]*[kKmM]?$`)

func ValidateProfiles(profiles []Profile) error {
	if len(profiles) == 0 {
		return errors.New("at least one profile is required")
	}

	seen := make(map[string]bool, len(profiles))
	var errs []error
	for i, p := range profiles {
		switch {
		case p.Name == "":
			errs = append(errs, fmt.Errorf("profile %d: name is empty", i))
		case seen[p.Name]:
			errs = append(errs, fmt.Errorf("profile %q: duplicate name", p.Name))
		}
		seen[p.Name] = true

		if p.Width <= 0 || p.Height <= 0 {
			errs = append(errs, fmt.Errorf("profile %q: width and height must be positive", p.Name))
		}
		// libx264 needs even dimensions for yuv420p
		if p.Width%2 != 0 || p.Height%2 != 0 {
			errs = append(errs, fmt.Errorf("profile %q: width and height must be even", p.Name))
		}
		if !bitrateRe.MatchString(p.VideoBitrate) {
			errs = append(errs, fmt.Errorf("profile %q: invalid video bitrate %q", p.Name, p.VideoBitrate))
		}
	}
	return errors.Join(errs...)
}
