package config

import (
	"fmt"
	"os"
	"strings"
)

// DefaultContext is the framework context sent with every analysis call
// when no context file is configured
const DefaultContext = `This project is a game built with the Unity engine and C#.
Framework context:
- MonoBehaviour components attach behaviour to GameObjects; Awake, Start, Update and
  FixedUpdate are engine callbacks invoked by the runtime, not by project code.
- ScriptableObject assets hold shared data and configuration.
- Coroutines (IEnumerator with yield) model work spread over frames.
- Serialized fields ([SerializeField], public fields) are edited in the Unity inspector.
- Namespaces under UnityEngine and UnityEditor belong to the engine, not the project.`

// LoadContext reads the context document at path. An empty path yields
// DefaultContext. The result is trimmed of surrounding whitespace.
func LoadContext(path string) (string, error) {
	if path == "" {
		return DefaultContext, nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return "", &ConfigError{Field: "context_file", Reason: err.Error()}
	}
	text := strings.TrimSpace(string(data))
	if text == "" {
		return "", &ConfigError{Field: "context_file", Reason: fmt.Sprintf("%s is empty", path)}
	}
	return text, nil
}
