package config

import (
	"fmt"
	"os"
	"regexp"

	"gopkg.in/yaml.v3"

	"github.com/dantezy/p2p-quoter/internal/p2p"
)

var envPattern = regexp.MustCompile(`^\$\{([A-Za-z_][A-Za-z0-9_]*)\}$`)

// fileConfig mirrors the layout of config.yaml. Sides stay raw until each one
// is decoded over its defaults.
type fileConfig struct {
	P2P      P2PConfig            `yaml:"p2p"`
	Sides    map[string]yaml.Node `yaml:"sides"`
	Messages Messages             `yaml:"messages"`
}

// loadFile reads the YAML file at path into c and applies defaults.
func (c *Config) loadFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("failed to read config file %s: %w", path, err)
	}
	return c.parse(data)
}

func (c *Config) parse(data []byte) error {
	var root yaml.Node
	if err := yaml.Unmarshal(data, &root); err != nil {
		return fmt.Errorf("failed to parse config file: %w", err)
	}
	expandEnv(&root)

	// defaults are filled in before decoding so keys present in the file,
	// zero included, win over them
	fc := fileConfig{P2P: defaultP2PConfig()}
	if err := root.Decode(&fc); err != nil {
		return fmt.Errorf("failed to decode config file: %w", err)
	}
	c.P2P = fc.P2P

	messages, err := fc.Messages.normalize()
	if err != nil {
		return err
	}
	c.Messages = messages

	c.Sides = make(map[p2p.Side]SideConfig, len(fc.Sides))
	for name, node := range fc.Sides {
		side, err := p2p.ParseSide(name)
		if err != nil {
			return fmt.Errorf("sides: %w", err)
		}
		sc := defaultSideConfig()
		if err := node.Decode(&sc); err != nil {
			return fmt.Errorf("sides.%s: %w", name, err)
		}
		sc.Side = side
		sc.DefaultGap = c.P2P.PriceGap
		c.Sides[side] = sc
	}
	return nil
}

// expandEnv replaces scalar values of the form ${VAR} with the value of the
// environment variable. Unset variables become empty strings.
func expandEnv(node *yaml.Node) {
	if node.Kind == yaml.ScalarNode {
		if m := envPattern.FindStringSubmatch(node.Value); m != nil {
			node.Value = os.Getenv(m[1])
			node.Tag = ""
			node.Style = 0
		}
		return
	}
	for _, child := range node.Content {
		expandEnv(child)
	}
}

func defaultP2PConfig() P2PConfig {
	return P2PConfig{
		PollIntervalSeconds: defaultPollInterval,
		PageSize:            defaultPageSize,
		MaxPages:            defaultMaxPages,
		PriceStep:           defaultPriceStep,
		PriceDecimals:       defaultPriceDigits,
		TerminalStatuses: []int{
			p2p.OrderStatusCancelled,
			p2p.OrderStatusCompleted,
			p2p.OrderStatusExceptionCanceled,
		},
		BuyTag:  defaultBuyTag,
		SellTag: defaultSellTag,
	}
}

// MessageSet is one or more chat messages sent together. In YAML it is either
// a single string or a list of strings.
type MessageSet []string

func (m *MessageSet) UnmarshalYAML(node *yaml.Node) error {
	switch node.Kind {
	case yaml.ScalarNode:
		if node.Value == "" {
			*m = nil
			return nil
		}
		*m = MessageSet{node.Value}
		return nil
	case yaml.SequenceNode:
		var items []string
		if err := node.Decode(&items); err != nil {
			return err
		}
		out := make(MessageSet, 0, len(items))
		for _, item := range items {
			if item != "" {
				out = append(out, item)
			}
		}
		*m = out
		return nil
	default:
		return fmt.Errorf("line %d: message must be a string or a list of strings", node.Line)
	}
}

// Messages holds the chat templates sent to counterparties, keyed by side name.
type Messages struct {
	Status10 map[string]MessageSet `yaml:"status_10"`
	Status20 map[string]MessageSet `yaml:"status_20"`
}

// normalize rekeys the templates by canonical side name so "buy" and "0" work.
func (m Messages) normalize() (Messages, error) {
	rekey := func(in map[string]MessageSet) (map[string]MessageSet, error) {
		out := make(map[string]MessageSet, len(in))
		for name, set := range in {
			side, err := p2p.ParseSide(name)
			if err != nil {
				return nil, fmt.Errorf("messages: %w", err)
			}
			out[side.String()] = set
		}
		return out, nil
	}

	var err error
	var out Messages
	if out.Status10, err = rekey(m.Status10); err != nil {
		return Messages{}, err
	}
	if out.Status20, err = rekey(m.Status20); err != nil {
		return Messages{}, err
	}
	return out, nil
}

// For returns the messages configured for an order status on a side.
// An empty result disables the notification.
func (m Messages) For(status int, side p2p.Side) []string {
	var byside map[string]MessageSet
	switch status {
	case p2p.OrderStatusAwaitingPayment:
		byside = m.Status10
	case p2p.OrderStatusAwaitingRelease:
		byside = m.Status20
	default:
		return nil
	}
	return byside[side.String()]
}
