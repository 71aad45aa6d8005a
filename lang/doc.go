// Package lang implements UL4, a template language whose compiled templates
// can be serialized, shipped to another process and rendered there.
//
// # Tags
//
// A template is literal text interleaved with tags. With the default
// delimiters a tag looks like <?type code?>:
//
//	<?print x?>             output str(x)
//	<?printx x?>            output str(x), XML escaped
//	<?code x = 1?>          assignment, augmented assignment, del, calls
//	<?for a, b in items?>   loop, closed by <?end for?>
//	<?if c?> <?elif d?> <?else?> <?end if?>
//	<?break?> <?continue?>
//	<?def name?>            nested template, closed by <?end def?>
//	<?return x?>            end the template call with a value
//	<?render t(a=1)?>       output another template inline
//	<?note ...?>            comment, dropped while segmenting
//
// # Compiling and rendering
//
// [Compile] turns source into a [Template]. Rendering is pull based:
//
//	t, err := lang.Compile(ctx, "<?for i in range(n)?><?print i?>,<?end for?>")
//	if err != nil {
//	    return err
//	}
//
//	for chunk, err := range t.Render(ctx, map[string]any{"n": 3}) {
//	    if err != nil {
//	        return err
//	    }
//	    fmt.Print(chunk)
//	}
//
// Stopping the loop early abandons evaluation. [Template.Call] evaluates a
// template as a function and returns the value of its return tag.
//
// # Values
//
// Templates work with None (nil), bool, int, float64, string, time.Time,
// [TimeDelta], [MonthDelta], [Color], lists ([*List]), dicts ([*Dict]),
// templates and [TemplateClosure] values. Host maps, slices and structs are
// accepted as input; types implementing [Attributer] expose attributes and
// types implementing [Caller] can be called.
//
// Lists and dicts are shared: a change made through one variable is seen
// through every other variable or closure holding the same value. A host
// slice is copied into a [*List] the first time a method changes it.
//
// Failed lookups produce [Undefined] values instead of errors. They are
// falsy and print as nothing, but iterating or indexing them fails with
// [ErrUndefined].
//
// # Serialization
//
// [Dumps] and [Loads] use a compact text format that keeps shared objects
// shared; [DumpBinary] and [LoadBinary] write the same object model as CBOR.
// Both carry [Version] and reject templates written by another version with
// [ErrVersion].
//
// # Errors
//
// Every error matches one of the sentinels (ErrSyntax, ErrType, ...) with
// [errors.Is]. Errors raised by a tag are wrapped in a [LocationError] for
// each template frame they pass through.
package lang
