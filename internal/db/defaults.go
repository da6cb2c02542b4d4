package db

import "database/sql"

// defaultTemplates returns the built-in review templates seeded at startup.
func defaultTemplates() []Template {
	mk := func(name, title, description, prompt, schema string) Template {
		return Template{
			Name:            name,
			Title:           title,
			Description:     nullString(description),
			Category:        sql.NullString{String: "review", Valid: true},
			PromptTemplate:  prompt,
			ArgumentsSchema: nullString(schema),
		}
	}

	return []Template{
		mk("code_review", "Code Review",
			"Comprehensive code review for quality, maintainability, and best practices",
			`Please review the following code for:

1. **Code Quality**: Maintainability, readability, and adherence to best practices
2. **Security**: Potential security vulnerabilities or injection risks
3. **Performance**: Performance bottlenecks or optimization opportunities
4. **Error Handling**: Proper error handling and edge case coverage
5. **Testing**: Test coverage and test quality

{{#if focus_areas}}
Focus areas: {{focus_areas}}
{{/if}}

{{#if severity_level}}
Report issues with severity level: {{severity_level}} or higher
{{/if}}

Provide specific, actionable feedback with code examples where appropriate.`,
			`{"type":"object","properties":{"focus_areas":{"type":"array","description":"Specific areas to focus on (e.g., ['security', 'performance'])"},"severity_level":{"type":"string","enum":["error","warning","info"],"description":"Minimum severity level to report"}}}`),

		mk("security_review", "Security Review",
			"Security-focused code review with threat modeling",
			`Please perform a comprehensive security review of the following code:

1. **Injection Vulnerabilities**: SQL injection, XSS, command injection, etc.
2. **Authentication & Authorization**: Proper access controls and authentication mechanisms
3. **Data Protection**: Sensitive data handling, encryption, and secure storage
4. **Input Validation**: Proper validation and sanitization of user input
5. **Cryptography**: Proper use of cryptographic functions and key management

{{#if threat_model}}
Include threat modeling analysis for potential attack vectors.
{{/if}}

Report findings with severity ratings (Critical/High/Medium/Low) and remediation steps.`,
			`{"type":"object","properties":{"threat_model":{"type":"boolean","description":"Include threat modeling analysis"}}}`),

		mk("performance_review", "Performance Review",
			"Performance optimization review",
			`Please review the following code for performance optimization opportunities:

1. **Algorithmic Complexity**: Time and space complexity analysis
2. **I/O Operations**: Database queries, file operations, network calls
3. **Caching**: Opportunities for caching frequently accessed data
4. **Concurrency**: Opportunities for parallelization or async operations
5. **Resource Usage**: Memory usage, connection pooling, resource cleanup

{{#if profile_data}}
Consider the following performance profile data:
{{profile_data}}
{{/if}}

Provide specific optimization suggestions with estimated impact.`,
			`{"type":"object","properties":{"profile_data":{"type":"string","description":"Performance profiling data to consider"}}}`),

		mk("documentation_check", "Documentation Check",
			"Documentation completeness and quality review",
			`Please review the documentation for the following code:

1. **Docstrings**: Are all functions, classes, and modules documented?
2. **Comments**: Is complex logic explained with clear comments?
3. **Type Hints**: Are type annotations present and accurate?
4. **README**: Is there adequate documentation for usage?
5. **Examples**: Are usage examples provided?

{{#if standards}}
Standards to follow: {{standards}}
{{/if}}

Identify gaps and provide suggestions for improvement.`,
			`{"type":"object","properties":{"standards":{"type":"string","description":"Documentation standard to follow"}}}`),

		mk("testing_review", "Testing Review",
			"Test coverage and quality review",
			`Please review the test coverage for the following code:

1. **Coverage**: What percentage of code is covered by tests?
2. **Unit Tests**: Are there adequate unit tests for individual functions?
3. **Integration Tests**: Are integration tests covering key workflows?
4. **Edge Cases**: Are edge cases and error conditions tested?
5. **Test Quality**: Are tests clear, maintainable, and meaningful?

{{#if coverage_threshold}}
Minimum coverage threshold: {{coverage_threshold}}%
{{/if}}

Identify untested areas and suggest additional test cases.`,
			`{"type":"object","properties":{"coverage_threshold":{"type":"number","description":"Minimum coverage percentage expected"}}}`),
	}
}
