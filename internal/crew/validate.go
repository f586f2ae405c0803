package crew

import (
	"errors"
	"fmt"
	"path"
	"regexp"
	"strings"

	"github.com/go-playground/validator/v10"
)

var placeholderRe = regexp.MustCompile(`\{([A-Za-z_][A-Za-z0-9_]*)\}`)

var structValidator = validator.New(validator.WithRequiredStructEnabled())

// ValidationError lists every configuration problem found in one pass.
type ValidationError struct {
	Problems []string
}

func (e *ValidationError) Error() string {
	return "invalid crew configuration: " + strings.Join(e.Problems, "; ")
}

// Placeholders returns the distinct {name} placeholders of a template in
// order of first appearance.
func Placeholders(template string) []string {
	matches := placeholderRe.FindAllStringSubmatch(template, -1)
	seen := make(map[string]struct{}, len(matches))
	out := make([]string, 0, len(matches))
	for _, m := range matches {
		if _, ok := seen[m[1]]; ok {
			continue
		}
		seen[m[1]] = struct{}{}
		out = append(out, m[1])
	}
	return out
}

// Expand replaces every {name} placeholder for which lookup reports a value.
// Unknown placeholders are left as written. Substituted values are not
// re-expanded.
func Expand(template string, lookup func(name string) (string, bool)) string {
	if lookup == nil {
		return template
	}
	return placeholderRe.ReplaceAllStringFunc(template, func(m string) string {
		if v, ok := lookup(m[1 : len(m)-1]); ok {
			return v
		}
		return m
	})
}

// Validate checks struct constraints and referential integrity:
// unique names, known agents and tools, context refs to earlier tasks only,
// bound placeholders and safe, unique output files.
func Validate(c *Crew, knownTools ...string) error {
	if c == nil {
		return &ValidationError{Problems: []string{"crew is nil"}}
	}
	var problems []string
	if err := structValidator.Struct(c); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) {
			for _, fe := range verrs {
				problems = append(problems, fmt.Sprintf("%s failed %q", fe.Namespace(), fe.Tag()))
			}
		} else {
			problems = append(problems, err.Error())
		}
	}

	tools := make(map[string]struct{}, len(knownTools))
	for _, t := range knownTools {
		tools[t] = struct{}{}
	}
	inputs := make(map[string]struct{}, len(c.Inputs))
	for _, in := range c.Inputs {
		if _, dup := inputs[in]; dup {
			problems = append(problems, fmt.Sprintf("input %q declared twice", in))
		}
		inputs[in] = struct{}{}
	}

	agents := make(map[string]struct{}, len(c.Agents))
	for _, a := range c.Agents {
		if _, dup := agents[a.Name]; dup && a.Name != "" {
			problems = append(problems, fmt.Sprintf("agent %q declared twice", a.Name))
		}
		agents[a.Name] = struct{}{}
		if len(tools) == 0 {
			continue
		}
		for _, t := range a.Tools {
			if _, ok := tools[t]; !ok {
				problems = append(problems, fmt.Sprintf("agent %q uses unknown tool %q", a.Name, t))
			}
		}
	}

	earlier := make(map[string]struct{}, len(c.Tasks))
	outputs := make(map[string]string, len(c.Tasks))
	for _, t := range c.Tasks {
		if _, ok := agents[t.Agent]; !ok && t.Agent != "" {
			problems = append(problems, fmt.Sprintf("task %q assigned to unknown agent %q", t.Name, t.Agent))
		}
		if _, ok := inputs[t.Name]; ok {
			problems = append(problems, fmt.Sprintf("task %q shadows a run input of the same name", t.Name))
		}
		ctx := make(map[string]struct{}, len(t.Context))
		for _, ref := range t.Context {
			switch {
			case ref == t.Name:
				problems = append(problems, fmt.Sprintf("task %q lists itself as context", t.Name))
			case !isKey(earlier, ref):
				if _, later := c.Task(ref); later {
					problems = append(problems, fmt.Sprintf("task %q references %q which is declared later", t.Name, ref))
				} else {
					problems = append(problems, fmt.Sprintf("task %q references unknown task %q", t.Name, ref))
				}
			}
			if _, dup := ctx[ref]; dup {
				problems = append(problems, fmt.Sprintf("task %q lists context %q twice", t.Name, ref))
			}
			ctx[ref] = struct{}{}
		}
		for _, name := range Placeholders(t.Description) {
			if isKey(inputs, name) || isKey(ctx, name) {
				continue
			}
			problems = append(problems, fmt.Sprintf("task %q uses unbound placeholder {%s}", t.Name, name))
		}
		if t.OutputFile != "" {
			if err := checkOutputFile(t.OutputFile); err != nil {
				problems = append(problems, fmt.Sprintf("task %q: %v", t.Name, err))
			} else if prev, dup := outputs[t.OutputFile]; dup {
				problems = append(problems, fmt.Sprintf("tasks %q and %q write the same output file %q", prev, t.Name, t.OutputFile))
			}
			outputs[t.OutputFile] = t.Name
		}
		if _, dup := earlier[t.Name]; dup && t.Name != "" {
			problems = append(problems, fmt.Sprintf("task %q declared twice", t.Name))
		}
		earlier[t.Name] = struct{}{}
	}
	if final, ok := c.FinalTask(); ok && final.OutputFile == "" {
		problems = append(problems, fmt.Sprintf("final task %q must declare an output_file", final.Name))
	}

	if len(problems) > 0 {
		return &ValidationError{Problems: problems}
	}
	return nil
}

func checkOutputFile(p string) error {
	if strings.Contains(p, "\\") {
		return fmt.Errorf("output file %q must use forward slashes", p)
	}
	if path.IsAbs(p) {
		return fmt.Errorf("output file %q must be relative", p)
	}
	clean := path.Clean(p)
	if clean != p || clean == "." || clean == ".." || strings.HasPrefix(clean, "../") {
		return fmt.Errorf("output file %q is not a clean relative path", p)
	}
	if clean == RunRecordFile {
		return fmt.Errorf("output file %q is reserved for the run record", p)
	}
	return nil
}

func isKey(m map[string]struct{}, k string) bool {
	_, ok := m[k]
	return ok
}
