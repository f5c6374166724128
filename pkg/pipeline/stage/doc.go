/*
Package stage provides reusable pipeline stages for sorting, grouping,
aggregating, de-duplicating, paginating, flattening, transforming,
validating, logging, throttling and memoizing data.

Collection stages accept any slice or array as a sequence. Input of any other
kind is not an error: each stage documents what it returns instead, usually
the input unchanged.

Every constructor takes the stage name first and validates its arguments:

	byDate, err := stage.SortBy("by-date", func(item interface{}) interface{} {
		return item.(map[string]interface{})["date"]
	}, true)

	page, err := stage.Paginate("page-2", 2, 10)

Must wraps a constructor for use in variable initialization:

	var dedupe = stage.Must(stage.Unique("dedupe", nil))
*/
package stage
