package meshfilter

// ShaderSet carries the four opaque shader program sources the engine
// compiles on the worker goroutine before the first job runs: the model
// render program (vertex + fragment) and the filter program (vertex +
// fragment). The engine never interprets the sources; it hands them to the
// backend and treats the compiled programs as opaque units.
type ShaderSet struct {
	ModelVertex    string
	ModelFragment  string
	FilterVertex   string
	FilterFragment string
}

// DefaultShaders returns the stock GLSL sources for GPU backends. The
// software backend only validates them, so they also serve as the defaults
// for tests and synthetic runs.
func DefaultShaders() ShaderSet {
	return ShaderSet{
		ModelVertex:    modelVertexSrc,
		ModelFragment:  modelFragmentSrc,
		FilterVertex:   filterVertexSrc,
		FilterFragment: filterFragmentSrc,
	}
}

const modelVertexSrc = `#version 120
// Renders occluder meshes from the sensor viewpoint. Vertices are inflated
// along their normals by the padding polynomial of view depth so mesh edges
// tolerate calibration error.
uniform vec3 padding_coefficients;
varying float label;
void main()
{
  vec4 eye = gl_ModelViewMatrix * gl_Vertex;
  float z = -eye.z;
  float padding = padding_coefficients.x * z * z
                + padding_coefficients.y * z
                + padding_coefficients.z;
  vec3 normal = normalize(gl_NormalMatrix * gl_Normal);
  eye.xyz += normal * padding;
  label = gl_Color.r;
  gl_Position = gl_ProjectionMatrix * eye;
}
`

const modelFragmentSrc = `#version 120
// The color channel carries the mesh handle as the pixel label.
varying float label;
void main()
{
  gl_FragColor = vec4(label, 0.0, 0.0, 1.0);
  gl_FragDepth = gl_FragCoord.z;
}
`

const filterVertexSrc = `#version 120
void main()
{
  gl_TexCoord[0] = gl_MultiTexCoord0;
  gl_Position = gl_Vertex;
}
`

const filterFragmentSrc = `#version 120
// Compares the sensor depth against the model depth and classifies each
// pixel: self pixels take the model label and a blanked depth, pixels
// behind the model surface by more than the shadow threshold become
// shadow, everything else passes through as background.
uniform sampler2D sensor;
uniform sampler2D depth;
uniform sampler2D label;
uniform float shadow_threshold;
void main()
{
  vec2 uv = gl_TexCoord[0].st;
  float s = texture2D(sensor, uv).r;
  float m = texture2D(depth, uv).r;
  if (m >= 1.0 || s < m)
  {
    gl_FragColor = vec4(0.0, 0.0, 0.0, 1.0);
    gl_FragDepth = s;
  }
  else if (s - m <= shadow_threshold)
  {
    gl_FragColor = texture2D(label, uv);
    gl_FragDepth = 0.0;
  }
  else
  {
    gl_FragColor = vec4(1.0 / 255.0, 0.0, 0.0, 1.0);
    gl_FragDepth = 0.0;
  }
}
`
