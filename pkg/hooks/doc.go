// Package hooks provides a tag-based filter and action dispatcher.
//
// Callbacks are attached to a Tag at an integer priority. Running the tag
// threads a value through every callback in ascending priority order; within
// a priority, callbacks run in the order they were added.
//
// Example usage:
//
//	d := hooks.New(hooks.WithLogger(logger))
//
//	trim := hooks.Filter("trim", func(value any, args []any) (any, error) {
//		s, _ := value.(string)
//		return strings.TrimSpace(s), nil
//	})
//	d.Add("title", trim).AddAt("title", shout, 20)
//
//	out, err := d.Run("title", "  hello  ")
//
// A callback may run other tags; Current, Doing and DoingTag report which
// hooks are active and Did reports how many times a tag has been run.
package hooks
