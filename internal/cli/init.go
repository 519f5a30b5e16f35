package cli

import (
	"fmt"
	"maps"
	"os"
	"path/filepath"
	"slices"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/mesh-intelligence/daybook/pkg/types"
)

func (a *app) newInitCmd() *cobra.Command {
	var timezone string
	cmd := &cobra.Command{
		Use:   "init",
		Short: "Initialize daybook storage",
		Long: "Create the configuration and data directories, record --data-dir and\n" +
			"--timezone in config.yaml, then create the record database and index store.",
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			values := map[string]string{}
			if a.flags.dataDir != "" {
				dir, err := filepath.Abs(a.flags.dataDir)
				if err != nil {
					return sysErr(err)
				}
				values[cfgKeyDataDir] = dir
			}
			if timezone != "" {
				if _, err := (types.Config{Timezone: timezone}).Location(); err != nil {
					return fmt.Errorf("timezone %q: %w", timezone, err)
				}
				values[cfgKeyTimezone] = timezone
			}
			if len(values) > 0 {
				path := filepath.Join(a.configDir, configFileExt)
				if err := setConfigValues(path, values); err != nil {
					return sysErr(fmt.Errorf("write config: %w", err))
				}
				if err := a.loadConfig(); err != nil {
					return err
				}
			}

			s, err := a.openSession()
			if err != nil {
				return err
			}
			if err := s.Close(); err != nil {
				return sysErr(fmt.Errorf("finalize storage: %w", err))
			}
			fmt.Fprintf(a.stdout, "Daybook initialized in %s\n", s.config.DataDir)
			return nil
		},
	}
	cmd.Flags().StringVar(&timezone, "timezone", "", "IANA time zone that decides a record's day")
	return cmd
}

// setConfigValues sets top-level keys in the YAML file at path, keeping
// comments and the order of existing keys.
func setConfigValues(path string, values map[string]string) error {
	raw, err := os.ReadFile(path)
	if err != nil && !os.IsNotExist(err) {
		return err
	}
	var doc yaml.Node
	if err := yaml.Unmarshal(raw, &doc); err != nil {
		return fmt.Errorf("parse %s: %w", path, err)
	}
	if doc.Kind == 0 {
		doc = yaml.Node{Kind: yaml.DocumentNode, Content: []*yaml.Node{{Kind: yaml.MappingNode, Tag: "!!map"}}}
	}
	root := doc.Content[0]
	if root.Kind != yaml.MappingNode {
		return fmt.Errorf("%s: top level is not a mapping", path)
	}
	for _, key := range slices.Sorted(maps.Keys(values)) {
		setMappingValue(root, key, values[key])
	}

	out, err := yaml.Marshal(&doc)
	if err != nil {
		return err
	}
	return os.WriteFile(path, out, 0o644)
}

func setMappingValue(m *yaml.Node, key, value string) {
	for i := 0; i+1 < len(m.Content); i += 2 {
		if m.Content[i].Value == key {
			m.Content[i+1].SetString(value)
			return
		}
	}
	k := &yaml.Node{Kind: yaml.ScalarNode, Value: key}
	v := &yaml.Node{}
	v.SetString(value)
	m.Content = append(m.Content, k, v)
}
